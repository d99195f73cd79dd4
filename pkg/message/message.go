// Package message holds the outbound message model: attachment
// references as callers supply them, resolved attachments as the bridge
// consumes them, and the content classification applied at enqueue.
package message

import "strings"

// AttachmentRef is an attachment as supplied with an enqueue request.
// Exactly one of Data, URL or StorageKey should be set.
type AttachmentRef struct {
	// Data is a base64 payload, optionally wrapped in a data: URI.
	Data string `json:"data,omitempty"`

	// URL is a remote location, passed through or snapshotted per config.
	URL string `json:"url,omitempty"`

	// StorageKey names an object already in the media store.
	StorageKey string `json:"storageKey,omitempty"`

	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// IsZero reports whether the ref carries no source at all.
func (r *AttachmentRef) IsZero() bool {
	return r == nil || (r.Data == "" && r.URL == "" && r.StorageKey == "")
}

// Attachment is a resolved attachment ready for delivery. Either URL or
// Data is populated after resolution; StorageKey is kept when a stored
// copy exists.
type Attachment struct {
	MimeType   string `json:"mimeType,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	URL        string `json:"url,omitempty"`
	Data       []byte `json:"data,omitempty"`
	StorageKey string `json:"storageKey,omitempty"`
	Caption    string `json:"caption,omitempty"`
}

// Content is the classified message payload copied into each job.
// Attachments force caption mode: HasText is false and any request text
// rides the first attachment as its caption.
type Content struct {
	HasText  bool        `json:"hasText"`
	Text     string      `json:"text,omitempty"`
	Media    *Attachment `json:"media,omitempty"`
	Document *Attachment `json:"document,omitempty"`
}

// IsEmpty reports whether the content has nothing to deliver.
func (c Content) IsEmpty() bool {
	return !c.HasText && c.Media == nil && c.Document == nil
}

// Compose classifies request text and resolved attachments into Content.
//
//  1. Text is trimmed; it counts only when non-empty.
//  2. With no attachments the content is text-only.
//  3. Any attachment forces HasText=false and turns the text into the
//     caption of the first attachment (media when present, else the
//     document). The second attachment never carries a caption.
//
// Returns ErrEmptyContent when there is no text and no attachment.
func Compose(text string, media, document *Attachment) (Content, error) {
	trimmed := strings.TrimSpace(text)

	if media == nil && document == nil {
		if trimmed == "" {
			return Content{}, ErrRegistry.New(ErrEmptyContent)
		}
		return Content{HasText: true, Text: trimmed}, nil
	}

	c := Content{}
	caption := trimmed
	if media != nil {
		m := *media
		m.Caption = caption
		caption = ""
		c.Media = &m
	}
	if document != nil {
		d := *document
		d.Caption = caption
		c.Document = &d
	}
	return c, nil
}
