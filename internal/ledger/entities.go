package ledger

// Entity records persisted by the ledger. All timestamps are Unix
// milliseconds; offsets are log-entry ids in their "<ms>-<seq>" wire form.

// Topic is a named, partitioned event channel owned by a workspace.
type Topic struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Partitions  int    `json:"partitions"`
	RetentionMs int64  `json:"retentionMs"`
	Schema      string `json:"schema,omitempty"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// ConsumerGroup is a named set of consumers sharing partition assignment
// and committed offsets on one topic.
type ConsumerGroup struct {
	ID          string `json:"id"`
	TopicID     string `json:"topicId"`
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// ConsumerStatus is the lifecycle state of a registered consumer.
type ConsumerStatus string

const (
	ConsumerActive      ConsumerStatus = "ACTIVE"
	ConsumerInactive    ConsumerStatus = "INACTIVE"
	ConsumerRebalancing ConsumerStatus = "REBALANCING"
)

// Consumer is one member of a consumer group. ConsumerID is the
// caller-chosen name, unique within the group.
type Consumer struct {
	ID                 string         `json:"id"`
	GroupID            string         `json:"groupId"`
	ConsumerID         string         `json:"consumerId"`
	Status             ConsumerStatus `json:"status"`
	AssignedPartitions []int          `json:"assignedPartitions"`
	LastHeartbeatMs    int64          `json:"lastHeartbeatMs"`
	CreatedAtMs        int64          `json:"createdAtMs"`
}

// ConsumerOffset is the committed cursor of a group on one partition.
type ConsumerOffset struct {
	GroupID       string `json:"groupId"`
	Partition     int    `json:"partition"`
	Offset        string `json:"offset"`
	CommittedAtMs int64  `json:"committedAtMs"`
}

// MessageAck tracks one delivered-but-unacknowledged message under
// at-least-once semantics.
type MessageAck struct {
	ID           string `json:"id"`
	GroupID      string `json:"groupId"`
	ConsumerID   string `json:"consumerId"`
	Partition    int    `json:"partition"`
	Offset       string `json:"offset"`
	Acknowledged bool   `json:"acknowledged"`
	AckAtMs      int64  `json:"ackAtMs,omitempty"`
	NackAtMs     int64  `json:"nackAtMs,omitempty"`
	NackReason   string `json:"nackReason,omitempty"`
	ExpiresAtMs  int64  `json:"expiresAtMs"`
	CreatedAtMs  int64  `json:"createdAtMs"`
}

// DLQStatus is the dead-letter entry state machine position.
type DLQStatus string

const (
	DLQPending  DLQStatus = "PENDING"
	DLQRetrying DLQStatus = "RETRYING"
	DLQFailed   DLQStatus = "FAILED"
	DLQResolved DLQStatus = "RESOLVED"
)

// FailureReason classifies why a delivery was dead-lettered.
type FailureReason string

const (
	FailureProcessing      FailureReason = "PROCESSING_ERROR"
	FailureTimeout         FailureReason = "TIMEOUT"
	FailureValidation      FailureReason = "VALIDATION_ERROR"
	FailureDeserialization FailureReason = "DESERIALIZATION_ERROR"
	FailureUnknown         FailureReason = "UNKNOWN"
)

// DLQEntry is a parked failed delivery with its retry bookkeeping.
type DLQEntry struct {
	ID             string        `json:"id"`
	TopicID        string        `json:"topicId"`
	GroupID        string        `json:"groupId,omitempty"`
	Partition      int           `json:"partition"`
	OriginalOffset string        `json:"originalOffset"`
	Payload        string        `json:"payload"`
	Metadata       string        `json:"metadata,omitempty"`
	ErrorMessage   string        `json:"errorMessage"`
	ErrorStack     string        `json:"errorStack,omitempty"`
	FailureReason  FailureReason `json:"failureReason"`
	Status         DLQStatus     `json:"status"`
	RetryCount     int           `json:"retryCount"`
	MaxRetries     int           `json:"maxRetries"`
	NextRetryAtMs  int64         `json:"nextRetryAtMs"`
	ResolvedAtMs   int64         `json:"resolvedAtMs,omitempty"`
	CreatedAtMs    int64         `json:"createdAtMs"`
	UpdatedAtMs    int64         `json:"updatedAtMs"`
}

// RetryAttempt records one DLQ retry attempt.
type RetryAttempt struct {
	DLQID         string `json:"dlqId"`
	AttemptNumber int    `json:"attemptNumber"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	RetriedAtMs   int64  `json:"retriedAtMs"`
}
