package domain

import "time"

type Chat struct {
	ID int64
}

type User struct {
	ID       int64
	Username string
}

type PhotoSize struct {
	FileID   string
	Width    int
	Height   int
	FileSize int
}

type Message struct {
	ID    int
	Chat  *Chat
	From  *User
	Text  string
	Photo []PhotoSize
}

// Update is the subset of a Telegram update the bot acts on.
type Update struct {
	ID                int
	Message           *Message
	EditedMessage     *Message
	ChannelPost       *Message
	EditedChannelPost *Message
	// CallbackFrom is set for updates that carry a user but no message.
	CallbackFrom *User
}

// EffectiveMessage returns the first message-like payload of the update.
func (u *Update) EffectiveMessage() *Message {
	for _, m := range []*Message{u.Message, u.EditedMessage, u.ChannelPost, u.EditedChannelPost} {
		if m != nil {
			return m
		}
	}
	return nil
}

func (u *Update) EffectiveUser() *User {
	if m := u.EffectiveMessage(); m != nil && m.From != nil {
		return m.From
	}
	return u.CallbackFrom
}

func (u *Update) EffectiveChat() *Chat {
	if m := u.EffectiveMessage(); m != nil {
		return m.Chat
	}
	return nil
}

// Kind classifies an update for logging and the update log.
func (u *Update) Kind() UpdateKind {
	m := u.EffectiveMessage()
	switch {
	case m == nil:
		return UpdateKindOther
	case len(m.Photo) > 0:
		return UpdateKindPhoto
	case m.Text != "":
		return UpdateKindText
	default:
		return UpdateKindUnsupported
	}
}

type UpdateKind string

const (
	UpdateKindText        UpdateKind = "text"
	UpdateKindPhoto       UpdateKind = "photo"
	UpdateKindUnsupported UpdateKind = "unsupported"
	UpdateKindOther       UpdateKind = "other"
)

// Outcome is how an update was disposed of.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeThrottled Outcome = "throttled"
)

// ProcessedUpdate is the metadata kept about a handled update. Message
// contents are never stored.
type ProcessedUpdate struct {
	UpdateID    int
	ChatID      int64
	Kind        UpdateKind
	ProcessedAt time.Time
}
