// Package msgsrv implements the send use case: recipient normalization,
// attachment resolution, content classification and enqueueing one job
// per recipient on the unit's dispatch queue.
package msgsrv

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mchuluq/whatsapp-microservice/pkg/asyncx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/media"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
)

// RecipientList accepts either a single JSON string or an array of
// strings; callers send both shapes.
type RecipientList []string

func (r *RecipientList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = RecipientList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = RecipientList(many)
	return nil
}

// MessageInput is the raw content of a send request.
type MessageInput struct {
	Text     string                 `json:"text,omitempty"`
	Media    *message.AttachmentRef `json:"media,omitempty"`
	Document *message.AttachmentRef `json:"document,omitempty"`
}

// SendRequest is one enqueue request for a unit.
type SendRequest struct {
	Recipients RecipientList `json:"recipients"`
	Message    MessageInput  `json:"message"`
	DebugMode  bool          `json:"debugMode,omitempty"`
}

// MessageService drives the enqueue path end to end.
type MessageService struct {
	registry *queue.Registry
	resolver *media.Resolver
}

// NewMessageService creates the send service.
func NewMessageService(registry *queue.Registry, resolver *media.Resolver) *MessageService {
	return &MessageService{
		registry: registry,
		resolver: resolver,
	}
}

// Send validates the request and enqueues one job per recipient.
//
// Recipients are normalized all-or-nothing before anything else runs: a
// single bad address rejects the whole request and no job is created.
// Attachments are resolved once and shared by every recipient's job.
// Snapshots written during resolution are discarded if the enqueue
// fails afterwards, so a rejected request leaves no stored media
// behind.
func (s *MessageService) Send(ctx context.Context, unitID kernel.UnitID, req SendRequest) (*queue.EnqueueResult, error) {
	if unitID.IsEmpty() {
		return nil, queue.ErrRegistry.New(queue.ErrUnitRequired)
	}

	recipients, err := message.NormalizeRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}

	var (
		ownedMu sync.Mutex
		owned   []string
	)
	resolve := func(ref *message.AttachmentRef) func(context.Context) (*message.Attachment, error) {
		return func(ctx context.Context) (*message.Attachment, error) {
			if ref.IsZero() {
				return nil, nil
			}
			res, err := s.resolver.Resolve(ctx, ref)
			if err != nil {
				return nil, err
			}
			if res.OwnedKey != "" {
				ownedMu.Lock()
				owned = append(owned, res.OwnedKey)
				ownedMu.Unlock()
			}
			return res.Attachment, nil
		}
	}
	discard := func() {
		if len(owned) == 0 {
			return
		}
		s.resolver.Discard(context.WithoutCancel(ctx), owned...)
	}

	atts, err := asyncx.All(ctx, resolve(req.Message.Media), resolve(req.Message.Document))
	if err != nil {
		discard()
		return nil, err
	}

	content, err := message.Compose(req.Message.Text, atts[0], atts[1])
	if err != nil {
		discard()
		return nil, err
	}

	q, err := s.registry.GetOrCreate(ctx, unitID)
	if err != nil {
		discard()
		return nil, err
	}

	result, err := q.Enqueue(ctx, recipients, content, req.DebugMode)
	if err != nil {
		discard()
		return nil, err
	}
	return result, nil
}
