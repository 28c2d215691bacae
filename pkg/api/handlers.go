package api

import (
	"net/http"
	"sort"

	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.newMethodRouter(w, r).
		Get(func() { s.respondJSON(w, http.StatusOK, s.node.Query()) }).
		NotAllowed()
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	s.newMethodRouter(w, r).
		Get(func() {
			s.respondJSON(w, http.StatusOK, NodesResponse{Self: s.node.Query().ID, Nodes: s.node.Nodes()})
		}).
		NotAllowed()
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	s.newMethodRouter(w, r).
		Get(func() { s.listTopics(w) }).
		Post(func() { s.createTopic(w, r) }).
		NotAllowed()
}

func (s *Server) listTopics(w http.ResponseWriter) {
	topics, err := s.store.Topics()
	if err != nil {
		s.respondStoreError(w, err, "list topics")
		return
	}
	resp := TopicsResponse{Topics: make([]TopicResponse, 0, len(topics)), Count: len(topics)}
	for _, t := range topics {
		resp.Topics = append(resp.Topics, topicToResponse(t))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var req TopicRequest
	if s.newRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
		return
	}
	if err := s.store.CreateTopic(r.Context(), req.Name); err != nil {
		s.respondStoreError(w, err, "create topic")
		return
	}
	s.respondJSON(w, http.StatusCreated, TopicResponse{Name: req.Name, Subscribers: []SubscriberResponse{}})
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.newMethodRouter(w, r).
		Get(func() {
			t, err := s.store.Topic(name)
			if err != nil {
				s.respondStoreError(w, err, "get topic")
				return
			}
			s.respondJSON(w, http.StatusOK, topicToResponse(t))
		}).
		Delete(func() {
			if err := s.store.DestroyTopic(r.Context(), name); err != nil {
				s.respondStoreError(w, err, "destroy topic")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}).
		NotAllowed()
}

func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("name")
	s.newMethodRouter(w, r).
		Post(func() {
			var req SubscriberRequest
			if s.newRequestDecoder(w, r).DecodeJSON(&req).Validate(&req).RespondError() {
				return
			}
			sub := replica.Subscriber{ID: req.ID, Endpoint: req.Endpoint}
			if err := s.store.Subscribe(r.Context(), topic, sub); err != nil {
				s.respondStoreError(w, err, "subscribe")
				return
			}
			s.respondJSON(w, http.StatusCreated, SubscriberResponse{ID: sub.ID, Endpoint: sub.Endpoint})
		}).
		NotAllowed()
}

func (s *Server) handleSubscriber(w http.ResponseWriter, r *http.Request) {
	topic, id := r.PathValue("name"), r.PathValue("id")
	s.newMethodRouter(w, r).
		Delete(func() {
			if err := s.store.Unsubscribe(r.Context(), topic, id); err != nil {
				s.respondStoreError(w, err, "unsubscribe")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}).
		NotAllowed()
}

func topicToResponse(t replica.Topic) TopicResponse {
	subs := make([]SubscriberResponse, 0, len(t.Subscribers))
	for _, sub := range t.Subscribers {
		subs = append(subs, SubscriberResponse{ID: sub.ID, Endpoint: sub.Endpoint})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return TopicResponse{Name: t.Name, Subscribers: subs}
}
