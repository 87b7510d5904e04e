package app

import (
	"context"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// RoomLister is the durable room catalog.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
}

// RoomView is a durable room with its live presence count.
type RoomView struct {
	domain.Room
	MemberCount int `json:"memberCount"`
}

// RoomDirectory joins the durable room catalog with live membership.
type RoomDirectory struct {
	Store RoomLister
	Rooms *core.Tracker
}

func NewRoomDirectory(store RoomLister, rooms *core.Tracker) *RoomDirectory {
	return &RoomDirectory{Store: store, Rooms: rooms}
}

func (d *RoomDirectory) List(ctx context.Context) ([]RoomView, error) {
	rooms, err := d.Store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomView{Room: r, MemberCount: d.Rooms.MemberCount(r.ID)})
	}
	return out, nil
}

// Members returns the presence list of one room, empty when nobody is in it.
func (d *RoomDirectory) Members(roomID domain.RoomID) []domain.Member {
	snap := d.Rooms.Snapshot(roomID)
	if snap.Members == nil {
		return []domain.Member{}
	}
	return snap.Members
}

// Live lists rooms that currently have members, whether stored or not.
func (d *RoomDirectory) Live() []core.RoomInfo {
	return d.Rooms.List()
}
