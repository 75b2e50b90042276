package models

import "time"

// Embed is a structured block attached to a chat message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []AlertField `json:"fields,omitempty"`
}

// ChatMessage is a message as rendered by the chat surface.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Channel   string    `json:"channel" validate:"required"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content,omitempty"`
	Embeds    []Embed   `json:"embeds,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
