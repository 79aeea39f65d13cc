package model

import "time"

type User struct {
	ID       string
	Name     string
	Email    string
	Provider bool
}

func (u User) Party() Party {
	return Party{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Notification is an in-app message for a user. Notifications are only appended.
type Notification struct {
	ID        string
	UserID    string
	Content   string
	Read      bool
	CreatedAt time.Time
}
