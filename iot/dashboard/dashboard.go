/*
Package dashboard keeps a saved search per thing in the realtime dashboard

Every registered thing gets a saved query whose title is the thing name and whose filter
selects the thing's metrics. QueryRegistry abstracts the dashboard, Kibana implements it
against the saved objects API.
*/
package dashboard

import (
	"context"
	"fmt"

	"github.com/relabs-tech/provisioning/core/logger"
)

// Language is the query language of saved queries
const Language = "kuery"

// SavedQuery is a saved search
type SavedQuery struct {
	ID       string
	Title    string
	Query    string
	Language string
}

// QueryRegistry stores saved queries
type QueryRegistry interface {
	// FindQuery returns the saved queries matching title. Matching may be fuzzy, callers compare
	// titles themselves.
	FindQuery(ctx context.Context, title string) ([]SavedQuery, error)
	CreateQuery(ctx context.Context, title, filter string) error
	DeleteQuery(ctx context.Context, id string) error
}

// Filter returns the filter selecting the metrics of thing
func Filter(thing string) string {
	return fmt.Sprintf("PARTITION_KEY:%s OR thingName:%s", thing, thing)
}

// EnsureQuery creates the saved query for thing unless one with exactly that title exists
func EnsureQuery(ctx context.Context, qr QueryRegistry, thing string) error {
	log := logger.FromContext(ctx)
	found, err := qr.FindQuery(ctx, thing)
	if err != nil {
		return fmt.Errorf("cannot look up saved query %s: %w", thing, err)
	}
	for _, q := range found {
		if q.Title == thing {
			log.Infof("Saved query %s exists already", thing)
			return nil
		}
	}
	if err := qr.CreateQuery(ctx, thing, Filter(thing)); err != nil {
		return fmt.Errorf("cannot create saved query %s: %w", thing, err)
	}
	log.Infof("Created saved query %s", thing)
	return nil
}

// RemoveQuery deletes the saved query for thing. Queries with the same title but a different
// filter were not created by us and are left alone.
func RemoveQuery(ctx context.Context, qr QueryRegistry, thing string) error {
	log := logger.FromContext(ctx)
	found, err := qr.FindQuery(ctx, thing)
	if err != nil {
		return fmt.Errorf("cannot look up saved query %s: %w", thing, err)
	}
	filter := Filter(thing)
	for _, q := range found {
		if q.Title != thing || q.Query != filter {
			continue
		}
		if err := qr.DeleteQuery(ctx, q.ID); err != nil {
			return fmt.Errorf("cannot delete saved query %s: %w", q.ID, err)
		}
		log.Infof("Deleted saved query %s", thing)
		return nil
	}
	log.Infof("No saved query for %s", thing)
	return nil
}
