package schema

import "strings"

const topicSep = "."

// Topic addresses events as <category>.<subtype>.
type Topic string

const (
	TopicOrderNew      Topic = "order.new"
	TopicOrderCancel   Topic = "order.cancel"
	TopicOrderCreated  Topic = "order.created"
	TopicOrderRejected Topic = "order.rejected"
	TopicOrderCanceled Topic = "order.canceled"
	TopicOrderError    Topic = "order.error"
	TopicOrderStatus   Topic = "order.status"
	TopicTradeExecuted Topic = "trade.executed"
	TopicRiskReset     Topic = "risk.reset"
)

// NewTopic joins a category and a sub-type.
func NewTopic(category, subtype string) Topic {
	return Topic(category + topicSep + subtype)
}

// Category returns the part before the first separator.
func (t Topic) Category() string {
	category, _, _ := strings.Cut(string(t), topicSep)
	return category
}

// Subtype returns the part after the first separator.
func (t Topic) Subtype() string {
	_, subtype, _ := strings.Cut(string(t), topicSep)
	return subtype
}

// Valid reports whether both category and sub-type are present.
func (t Topic) Valid() bool {
	category, subtype, ok := strings.Cut(string(t), topicSep)
	return ok && category != "" && subtype != ""
}

func (t Topic) String() string {
	return string(t)
}
