package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PayloadKind tags the structured attachment of a message
type PayloadKind string

const (
	KindText     PayloadKind = "text"
	KindImage    PayloadKind = "image"
	KindGift     PayloadKind = "gift"
	KindAction   PayloadKind = "action"
	KindPolaroid PayloadKind = "polaroid"
	KindEmoji    PayloadKind = "emoji"
)

// Payload is the structured part of a message. A nil Payload is plain text.
type Payload interface {
	Kind() PayloadKind
	// Describe renders the payload as text for contexts that cannot carry it.
	Describe(body string) string
}

// ImagePayload is a photo attachment. Base64 is set only while the image
// data is available locally.
type ImagePayload struct {
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Base64   string `json:"base64,omitempty"`
}

// GiftPayload is a virtual gift sent to a persona
type GiftPayload struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Effect    string `json:"effect,omitempty"`
	Affection *int   `json:"affection,omitempty"`
	Icon      string `json:"icon,omitempty"`
}

// ActionPayload is a scripted interaction such as a hug
type ActionPayload struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Effect string `json:"effect,omitempty"`
}

// PolaroidPayload is a generated photo of the user with the persona
type PolaroidPayload struct {
	URI     string `json:"uri,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// EmojiPayload is a sticker reference
type EmojiPayload struct {
	Key string `json:"key"`
}

func (*ImagePayload) Kind() PayloadKind    { return KindImage }
func (*GiftPayload) Kind() PayloadKind     { return KindGift }
func (*ActionPayload) Kind() PayloadKind   { return KindAction }
func (*PolaroidPayload) Kind() PayloadKind { return KindPolaroid }
func (*EmojiPayload) Kind() PayloadKind    { return KindEmoji }

func (*ImagePayload) Describe(body string) string {
	if body != "" {
		return "【照片】" + body
	}
	return "【照片】"
}

func (g *GiftPayload) Describe(body string) string {
	if body != "" {
		return body
	}
	if g.Title != "" {
		return "送出了礼物：" + g.Title
	}
	return "送出了礼物"
}

func (a *ActionPayload) Describe(body string) string {
	if body != "" {
		return body
	}
	if a.Title != "" {
		return "动作：" + a.Title
	}
	return "动作指令"
}

func (*PolaroidPayload) Describe(body string) string {
	if body != "" {
		return body
	}
	return "拍立得合影"
}

func (*EmojiPayload) Describe(body string) string {
	if body != "" {
		return body
	}
	return "[表情]"
}

// KindOf returns the kind of p, treating nil as text.
func KindOf(p Payload) PayloadKind {
	if p == nil {
		return KindText
	}
	return p.Kind()
}

type imageWire struct {
	ImagePayload
	MimeTypeAlt string `json:"mime_type"`
	FileNameAlt string `json:"file_name"`
}

type giftWire struct {
	GiftPayload
	GiftID string `json:"giftId"`
}

// DecodePayload parses the stored (kind, raw) pair of a message.
// Image, gift, action and polaroid payloads that are not JSON objects are
// kept as a bare uri or title.
func DecodePayload(kind, raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	switch PayloadKind(kind) {
	case "", KindText:
		return nil, nil
	case KindImage:
		var w imageWire
		if !decodeObject(raw, &w) {
			return &ImagePayload{URI: raw}, nil
		}
		p := w.ImagePayload
		if p.MimeType == "" {
			p.MimeType = w.MimeTypeAlt
		}
		if p.FileName == "" {
			p.FileName = w.FileNameAlt
		}
		return &p, nil
	case KindGift:
		var w giftWire
		if !decodeObject(raw, &w) {
			return &GiftPayload{Title: raw}, nil
		}
		p := w.GiftPayload
		if p.ID == "" {
			p.ID = w.GiftID
		}
		return &p, nil
	case KindAction:
		p := &ActionPayload{}
		if !decodeObject(raw, p) {
			p = &ActionPayload{Title: raw}
		}
		return p, nil
	case KindPolaroid:
		p := &PolaroidPayload{}
		if !decodeObject(raw, p) {
			p = &PolaroidPayload{URI: raw}
		}
		return p, nil
	case KindEmoji:
		return &EmojiPayload{Key: raw}, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
}

// EncodePayload returns the (kind, raw) pair to store for p.
func EncodePayload(p Payload) (string, string, error) {
	if p == nil {
		return string(KindText), "", nil
	}
	if e, ok := p.(*EmojiPayload); ok {
		return string(KindEmoji), e.Key, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode %s payload: %w", p.Kind(), err)
	}
	return string(p.Kind()), string(data), nil
}

func decodeObject(raw string, target any) bool {
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return false
	}
	return json.Unmarshal([]byte(raw), target) == nil
}
