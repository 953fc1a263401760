package ledger

import (
	"encoding/binary"
)

// Keyspace helpers. All rows are JSON values; unique constraints are
// separate index keys written in the same batch as the row.
//
// Layout:
//   - reg/topic/{id}                         (Topic row)
//   - reg/topicname/{wsID}/{name}            (unique index -> topic id)
//   - reg/group/{id}                         (ConsumerGroup row)
//   - reg/groupname/{topicID}/{name}         (unique index -> group id)
//   - reg/grouptopic/{topicID}/{groupID}     (listing index)
//   - reg/consumer/{groupID}/{consumerID}    (Consumer row; natural key)
//   - reg/offset/{groupID}/{part_be4}        (ConsumerOffset row)
//   - reg/ack/{groupID}/{consumerID}/{offset} (MessageAck row)
//   - dlq/entry/{id}                         (DLQEntry row)
//   - dlq/topic/{topicID}/{id}               (listing index)
//   - dlq/group/{groupID}/{id}               (listing index)
//   - dlq/attempt/{dlqID}/{n_be4}            (RetryAttempt rows)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func join(parts ...string) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	k := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			k = append(k, '/')
		}
		k = append(k, p...)
	}
	return k
}

func keyTopic(id string) []byte              { return join("reg", "topic", id) }
func keyTopicName(ws, name string) []byte    { return join("reg", "topicname", ws, name) }
func keyTopicPrefix() []byte                 { return join("reg", "topic", "") }
func keyGroupRow(id string) []byte           { return join("reg", "group", id) }
func keyGroupName(topic, name string) []byte { return join("reg", "groupname", topic, name) }
func keyGroupTopic(topic, id string) []byte  { return join("reg", "grouptopic", topic, id) }
func keyGroupTopicPrefix(topic string) []byte {
	return join("reg", "grouptopic", topic, "")
}
func keyConsumer(group, consumer string) []byte { return join("reg", "consumer", group, consumer) }
func keyConsumerPrefix(group string) []byte     { return join("reg", "consumer", group, "") }

func keyOffset(group string, partition int) []byte {
	return appendBE4(join("reg", "offset", group, ""), uint32(partition))
}
func keyOffsetPrefix(group string) []byte { return join("reg", "offset", group, "") }

func keyAck(group, consumer, offset string) []byte {
	return join("reg", "ack", group, consumer, offset)
}
func keyAckPrefix() []byte                  { return join("reg", "ack", "") }
func keyAckGroupPrefix(group string) []byte { return join("reg", "ack", group, "") }

func keyDLQ(id string) []byte                 { return join("dlq", "entry", id) }
func keyDLQEntryPrefix() []byte               { return join("dlq", "entry", "") }
func keyDLQTopic(topic, id string) []byte     { return join("dlq", "topic", topic, id) }
func keyDLQTopicPrefix(topic string) []byte   { return join("dlq", "topic", topic, "") }
func keyDLQGroup(group, id string) []byte     { return join("dlq", "group", group, id) }
func keyDLQGroupPrefix(group string) []byte   { return join("dlq", "group", group, "") }
func keyAttempt(dlqID string, n int) []byte   { return appendBE4(join("dlq", "attempt", dlqID, ""), uint32(n)) }
func keyAttemptPrefix(dlqID string) []byte    { return join("dlq", "attempt", dlqID, "") }
