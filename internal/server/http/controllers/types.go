package controllers

// Request bodies shared by the controllers.

type createTopicReq struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Partitions  int    `json:"partitions"`
	RetentionMs int64  `json:"retentionMs"`
	Schema      string `json:"schema"`
}

type publishReq struct {
	TopicID   string            `json:"topicId"`
	Partition int               `json:"partition"`
	Payload   string            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	TTLMs     int64             `json:"ttlMs"`
}

type createGroupReq struct {
	TopicID string `json:"topicId"`
	Name    string `json:"name"`
}

type consumerReq struct {
	GroupID    string `json:"groupId"`
	ConsumerID string `json:"consumerId"`
}

type commitOffsetReq struct {
	GroupID   string `json:"groupId"`
	Partition int    `json:"partition"`
	Offset    string `json:"offset"`
}

type ackReq struct {
	GroupID    string   `json:"groupId"`
	ConsumerID string   `json:"consumerId"`
	Offsets    []string `json:"offsets"`
}

type nackReq struct {
	GroupID    string `json:"groupId"`
	ConsumerID string `json:"consumerId"`
	Offset     string `json:"offset"`
	Reason     string `json:"reason"`
	Requeue    bool   `json:"requeue"`
}

type dlqSendReq struct {
	TopicID        string `json:"topicId"`
	GroupID        string `json:"groupId"`
	Partition      int    `json:"partition"`
	OriginalOffset string `json:"originalOffset"`
	Payload        string `json:"payload"`
	Metadata       string `json:"metadata"`
	ErrorMessage   string `json:"errorMessage"`
	ErrorStack     string `json:"errorStack"`
	FailureReason  string `json:"failureReason"`
	MaxRetries     int    `json:"maxRetries"`
}

type replayStartReq struct {
	TopicID            string  `json:"topicId"`
	DestinationTopicID string  `json:"destinationTopicId"`
	Mode               string  `json:"mode"`
	StartOffset        string  `json:"startOffset"`
	EndOffset          string  `json:"endOffset"`
	FromTimestampMs    int64   `json:"fromTimestampMs"`
	ToTimestampMs      int64   `json:"toTimestampMs"`
	Speed              float64 `json:"speed"`
}

type dlqRetryReq struct {
	DestinationTopicID string `json:"destinationTopicId"`
}

type snapshotReq struct {
	TopicID string `json:"topicId"`
	Name    string `json:"name"`
}
