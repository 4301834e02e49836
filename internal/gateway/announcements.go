package gateway

import (
	"context"
	"net/http"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

func (g *Gateway) Announcements(ctx context.Context) ([]model.Announcement, error) {
	var out []model.Announcement
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/announcements", Out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// Announcement fetches one announcement. The backend counts it as a view.
func (g *Gateway) Announcement(ctx context.Context, id string) (*model.Announcement, error) {
	var out model.Announcement
	err := g.do(ctx, call{
		Method: http.MethodGet,
		Route:  "/announcements/{id}",
		Path:   "/announcements/" + escape(id),
		Out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) CreateAnnouncement(ctx context.Context, a model.Announcement) (*model.Announcement, error) {
	var out model.Announcement
	if err := g.do(ctx, call{Method: http.MethodPost, Route: "/announcements", Body: a, Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) UpdateAnnouncement(ctx context.Context, id string, a model.Announcement) (*model.Announcement, error) {
	var out model.Announcement
	err := g.do(ctx, call{
		Method: http.MethodPut,
		Route:  "/announcements/{id}",
		Path:   "/announcements/" + escape(id),
		Body:   a,
		Out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) DeleteAnnouncement(ctx context.Context, id string) error {
	return g.do(ctx, call{
		Method: http.MethodDelete,
		Route:  "/announcements/{id}",
		Path:   "/announcements/" + escape(id),
	})
}

// ToggleAnnouncementPin flips the pinned flag and returns the updated record.
func (g *Gateway) ToggleAnnouncementPin(ctx context.Context, id string) (*model.Announcement, error) {
	var out model.Announcement
	err := g.do(ctx, call{
		Method: http.MethodPost,
		Route:  "/announcements/{id}/pin",
		Path:   "/announcements/" + escape(id) + "/pin",
		Out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
