package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/campustrack/internal/realtime"
)

func (g *Gateway) database(op string) (realtime.Database, error) {
	if g.db == nil {
		return nil, apperr.New(apperr.KindCapability, op, "realtime database is not configured")
	}
	return g.db, nil
}

func checkID(op, name, id string) error {
	if !paths.Valid(id) {
		return apperr.Validation(op, map[string]string{name: fmt.Sprintf("invalid id %q", id)})
	}
	return nil
}

func (g *Gateway) nowMillis() model.Timestamp { return model.At(g.now()) }

// decodeChildren decodes every child into T, stamping its key through setID.
// Undecodable children are skipped and reported.
func decodeChildren[T any](children []realtime.Child, setID func(*T, string), onErr realtime.ErrorFunc) []T {
	out := make([]T, 0, len(children))
	var bad error
	for _, c := range children {
		var v T
		if err := json.Unmarshal(c.Data, &v); err != nil {
			bad = errors.Join(bad, fmt.Errorf("child %s: %w", c.Key, err))
			continue
		}
		setID(&v, c.Key)
		out = append(out, v)
	}
	if bad != nil && onErr != nil {
		onErr(apperr.Wrap(apperr.KindServer, "decode", bad))
	}
	return out
}

func decodeValue[T any](data json.RawMessage) (*T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apperr.Wrap(apperr.KindServer, "decode", err)
	}
	return &v, nil
}

// asFields turns v into a field map for merging writes, dropping the id.
func asFields(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	delete(fields, "id")
	return fields, nil
}

// --- vehicles ---

// WatchVehicles streams the active vehicles in arrival order.
func (g *Gateway) WatchVehicles(ctx context.Context, fn func([]model.VehicleSnapshot), onErr func(error)) (realtime.Disposer, error) {
	db, err := g.database("watch vehicles")
	if err != nil {
		return nil, err
	}
	return db.WatchChildren(ctx, paths.Vehicles, func(children []realtime.Child) {
		all := decodeChildren(children, func(v *model.VehicleSnapshot, id string) { v.ID = id }, onErr)
		active := all[:0]
		for _, v := range all {
			if v.IsActive {
				active = append(active, v)
			}
		}
		fn(active)
	}, onErr)
}

// AddVehicle stores a new active vehicle and returns its id.
func (g *Gateway) AddVehicle(ctx context.Context, v model.VehicleSnapshot) (string, error) {
	db, err := g.database("add vehicle")
	if err != nil {
		return "", err
	}
	fields, err := asFields(v)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "add vehicle", err)
	}
	now := g.nowMillis()
	fields["createdAt"] = now
	fields["updatedAt"] = now
	fields["isActive"] = true
	return db.Push(ctx, paths.Vehicles, fields)
}

func (g *Gateway) UpdateVehicle(ctx context.Context, id string, fields map[string]any) error {
	const op = "update vehicle"
	if err := checkID(op, "vehicleId", id); err != nil {
		return err
	}
	db, err := g.database(op)
	if err != nil {
		return err
	}
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updatedAt"] = g.nowMillis()
	return db.Update(ctx, paths.Vehicle(id), merged)
}

// DeleteVehicle deactivates a vehicle. The record is kept.
func (g *Gateway) DeleteVehicle(ctx context.Context, id string) error {
	return g.UpdateVehicle(ctx, id, map[string]any{"isActive": false})
}

// UpdateVehicleLocation replaces the vehicle's location record, stamped now,
// then touches the vehicle's updatedAt.
func (g *Gateway) UpdateVehicleLocation(ctx context.Context, id string, loc model.Location) error {
	const op = "update vehicle location"
	if err := checkID(op, "vehicleId", id); err != nil {
		return err
	}
	db, err := g.database(op)
	if err != nil {
		return err
	}
	loc.Timestamp = g.nowMillis()
	if err := db.Set(ctx, paths.VehicleLocation(id), loc); err != nil {
		return err
	}
	return db.Update(ctx, paths.Vehicle(id), map[string]any{"updatedAt": loc.Timestamp})
}

// WatchVehicleLocation streams one vehicle's location; nil means none yet.
func (g *Gateway) WatchVehicleLocation(ctx context.Context, id string, fn func(*model.Location), onErr func(error)) (realtime.Disposer, error) {
	const op = "watch vehicle location"
	if err := checkID(op, "vehicleId", id); err != nil {
		return nil, err
	}
	db, err := g.database(op)
	if err != nil {
		return nil, err
	}
	return db.WatchValue(ctx, paths.VehicleLocation(id), func(data json.RawMessage) {
		loc, err := decodeValue[model.Location](data)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(loc)
	}, onErr)
}

// ReportLocation writes a driver's sample to the realtime database and to
// the backend. Both writes are attempted; the first error is returned.
func (g *Gateway) ReportLocation(ctx context.Context, sample model.LocationSample) error {
	rtErr := g.UpdateVehicleLocation(ctx, sample.VehicleID, sample.Location(g.now()))
	restErr := g.PostLocation(ctx, sample)
	if rtErr != nil {
		return rtErr
	}
	return restErr
}

// --- notifications ---

// WatchNotifications streams the newest notifications addressed to userID,
// newest first, at most model.NotificationLimit.
func (g *Gateway) WatchNotifications(ctx context.Context, userID string, fn func([]model.Notification), onErr func(error)) (realtime.Disposer, error) {
	const op = "watch notifications"
	if err := checkID(op, "userId", userID); err != nil {
		return nil, err
	}
	db, err := g.database(op)
	if err != nil {
		return nil, err
	}
	return db.WatchChildren(ctx, paths.Notifications, func(children []realtime.Child) {
		all := decodeChildren(children, func(n *model.Notification, id string) { n.ID = id }, onErr)
		fn(selectNotifications(all, userID))
	}, onErr)
}

func selectNotifications(all []model.Notification, userID string) []model.Notification {
	mine := make([]model.Notification, 0, len(all))
	for _, n := range all {
		if n.Recipient == userID {
			mine = append(mine, n)
		}
	}
	if len(mine) > model.NotificationLimit {
		mine = mine[len(mine)-model.NotificationLimit:]
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].Timestamp.After(mine[j].Timestamp.Time)
	})
	return mine
}

// SendNotification stores an unread notification, stamped now, and returns its id.
func (g *Gateway) SendNotification(ctx context.Context, n model.Notification) (string, error) {
	const op = "send notification"
	if err := checkID(op, "recipient", n.Recipient); err != nil {
		return "", err
	}
	db, err := g.database(op)
	if err != nil {
		return "", err
	}
	n.ID = ""
	n.Read = false
	n.Timestamp = g.nowMillis()
	fields, err := asFields(n)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, op, err)
	}
	return db.Push(ctx, paths.Notifications, fields)
}

func (g *Gateway) MarkNotificationRead(ctx context.Context, id string) error {
	const op = "mark notification read"
	if err := checkID(op, "notificationId", id); err != nil {
		return err
	}
	db, err := g.database(op)
	if err != nil {
		return err
	}
	return db.Update(ctx, paths.Notification(id), map[string]any{"read": true})
}

// --- users ---

func (g *Gateway) User(ctx context.Context, id string) (*model.User, error) {
	const op = "get user"
	if err := checkID(op, "userId", id); err != nil {
		return nil, err
	}
	db, err := g.database(op)
	if err != nil {
		return nil, err
	}
	data, err := db.Get(ctx, paths.User(id))
	if err != nil {
		return nil, err
	}
	u, err := decodeValue[model.User](data)
	if err != nil || u == nil {
		return nil, err
	}
	u.ID = id
	return u, nil
}

func (g *Gateway) WatchUser(ctx context.Context, id string, fn func(*model.User), onErr func(error)) (realtime.Disposer, error) {
	const op = "watch user"
	if err := checkID(op, "userId", id); err != nil {
		return nil, err
	}
	db, err := g.database(op)
	if err != nil {
		return nil, err
	}
	return db.WatchValue(ctx, paths.User(id), func(data json.RawMessage) {
		u, err := decodeValue[model.User](data)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		if u != nil {
			u.ID = id
		}
		fn(u)
	}, onErr)
}

func (g *Gateway) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	const op = "update user"
	if err := checkID(op, "userId", id); err != nil {
		return err
	}
	db, err := g.database(op)
	if err != nil {
		return err
	}
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updatedAt"] = g.nowMillis()
	return db.Update(ctx, paths.User(id), merged)
}

// SaveDeviceToken registers this device's push token for userID.
func (g *Gateway) SaveDeviceToken(ctx context.Context, userID, token string) error {
	const op = "save device token"
	if err := checkID(op, "userId", userID); err != nil {
		return err
	}
	db, err := g.database(op)
	if err != nil {
		return err
	}
	return db.Set(ctx, paths.UserToken(userID), model.DeviceToken{Token: token, LastUpdated: g.nowMillis()})
}

// DeviceToken returns userID's push registration. None is a NotFound error.
func (g *Gateway) DeviceToken(ctx context.Context, userID string) (*model.DeviceToken, error) {
	const op = "get device token"
	if err := checkID(op, "userId", userID); err != nil {
		return nil, err
	}
	db, err := g.database(op)
	if err != nil {
		return nil, err
	}
	data, err := db.Get(ctx, paths.UserToken(userID))
	if err != nil {
		return nil, err
	}
	return decodeValue[model.DeviceToken](data)
}

// RemoveDeviceToken drops userID's push registration, e.g. once the push
// service reports it gone.
func (g *Gateway) RemoveDeviceToken(ctx context.Context, userID string) error {
	const op = "remove device token"
	if err := checkID(op, "userId", userID); err != nil {
		return err
	}
	db, err := g.database(op)
	if err != nil {
		return err
	}
	return db.Remove(ctx, paths.UserToken(userID))
}

// --- chat ---

// WatchChat streams a channel's messages in arrival order.
func (g *Gateway) WatchChat(ctx context.Context, channelID string, fn func([]model.ChatMessage), onErr func(error)) (realtime.Disposer, error) {
	const op = "watch chat"
	if err := checkID(op, "channelId", channelID); err != nil {
		return nil, err
	}
	db, err := g.database(op)
	if err != nil {
		return nil, err
	}
	return db.WatchChildren(ctx, paths.Chat(channelID), func(children []realtime.Child) {
		fn(decodeChildren(children, func(m *model.ChatMessage, id string) {
			m.ID = id
			m.ChannelID = channelID
		}, onErr))
	}, onErr)
}

func (g *Gateway) SendChatMessage(ctx context.Context, channelID string, sender model.Sender, text string) (*model.ChatMessage, error) {
	const op = "send chat message"
	if err := checkID(op, "channelId", channelID); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, apperr.Validation(op, map[string]string{"text": "Message must not be empty"})
	}
	db, err := g.database(op)
	if err != nil {
		return nil, err
	}
	msg := model.ChatMessage{ChannelID: channelID, Sender: sender, Text: text, SentAt: g.nowMillis()}
	fields, err := asFields(msg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}
	id, err := db.Push(ctx, paths.Chat(channelID), fields)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return &msg, nil
}
