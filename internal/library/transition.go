package library

import (
	"time"

	"github.com/justyntemme/readlog/internal/models"
)

// checkTransition is the guard for status changes. Every transition is
// currently allowed; a rule such as "completed -> want needs confirmation"
// belongs here so callers stay untouched.
func checkTransition(from, to models.Status) error {
	return nil
}

// enterRule runs when a book moves into a status it was not already in.
// It only fills fields the update left unset.
type enterRule func(book *models.Book, update *StatusUpdate, now time.Time)

var enterRules = map[models.Status][]enterRule{
	models.StatusCompleted: {stampCompletedDate},
}

// stampCompletedDate records today as the completion date unless the
// caller supplied one or the book already carries one
func stampCompletedDate(book *models.Book, update *StatusUpdate, now time.Time) {
	if update.CompletedDate != nil || book.CompletedDate != nil {
		return
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	book.CompletedDate = &today
}

// applyUpdate moves book to update.Status and merges the optional fields.
// Fields absent from update are left as stored.
func applyUpdate(book *models.Book, update *StatusUpdate, now time.Time) error {
	from := book.Status
	to := update.Status

	if err := checkTransition(from, to); err != nil {
		return err
	}

	book.Status = to
	if update.Rating != nil {
		v := *update.Rating
		book.Rating = &v
	}
	if update.CompletedDate != nil {
		v := *update.CompletedDate
		book.CompletedDate = &v
	}
	if update.Progress != nil {
		v := *update.Progress
		book.Progress = &v
	}
	if update.Notes != nil {
		v := *update.Notes
		book.Notes = &v
	}

	if from != to {
		for _, rule := range enterRules[to] {
			rule(book, update, now)
		}
	}
	return nil
}
