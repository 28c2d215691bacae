package api

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// TopicRequest creates a topic.
type TopicRequest struct {
	Name string `json:"name" validate:"required,max=256,printascii"`
}

// SubscriberRequest adds a subscriber to a topic.
type SubscriberRequest struct {
	ID       string `json:"id" validate:"required,max=256,printascii"`
	Endpoint string `json:"endpoint,omitempty" validate:"omitempty,url"`
}

// NodesResponse lists the configured peer directory.
type NodesResponse struct {
	Self  int   `json:"self"`
	Nodes []int `json:"nodes"`
}

// TopicsResponse lists topics.
type TopicsResponse struct {
	Topics []TopicResponse `json:"topics"`
	Count  int             `json:"count"`
}

// TopicResponse describes one topic.
type TopicResponse struct {
	Name        string               `json:"name"`
	Subscribers []SubscriberResponse `json:"subscribers"`
}

// SubscriberResponse describes one subscriber.
type SubscriberResponse struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint,omitempty"`
}
