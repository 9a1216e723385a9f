package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"drawing-board/protocol"
)

// ErrRoomNotFound is returned when the relay knows no room by that slug.
var ErrRoomNotFound = errors.New("room not found")

// HTTPHistory reads the log from GET /chats/:roomId.
type HTTPHistory struct {
	BaseURL *url.URL
	Client  *http.Client
}

func (h HTTPHistory) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

// Fetch returns the room's log, oldest first.
func (h HTTPHistory) Fetch(ctx context.Context, room protocol.RoomID) ([]Entry, error) {
	var body struct {
		Messages []Entry `json:"messages"`
	}
	if err := getJSON(ctx, h.client(), h.BaseURL.JoinPath("chats", room.String()), &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// Room is the numeric id behind a room slug.
type Room struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

// LookupRoom resolves slug with GET /room/:slug.
func (h HTTPHistory) LookupRoom(ctx context.Context, slug string) (Room, error) {
	var body struct {
		Room *Room `json:"room"`
	}
	if err := getJSON(ctx, h.client(), h.BaseURL.JoinPath("room", slug), &body); err != nil {
		return Room{}, err
	}
	if body.Room == nil {
		return Room{}, fmt.Errorf("%w: %q", ErrRoomNotFound, slug)
	}
	return *body.Room, nil
}

// ResolveRoom accepts either a numeric room id or a slug.
func (h HTTPHistory) ResolveRoom(ctx context.Context, ref string) (protocol.RoomID, error) {
	if _, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return protocol.RoomID(ref).Canonical(), nil
	}
	r, err := h.LookupRoom(ctx, ref)
	if err != nil {
		return "", err
	}
	return protocol.RoomID(strconv.FormatInt(r.ID, 10)), nil
}

func getJSON(ctx context.Context, client *http.Client, u *url.URL, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
