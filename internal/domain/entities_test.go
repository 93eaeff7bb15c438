package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestChannelHasAdmin(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		userID  int64
		want    bool
	}{
		{name: "owner in admin list", channel: Channel{AdminIDs: []int64{10, 20}}, userID: 10, want: true},
		{name: "second admin", channel: Channel{AdminIDs: []int64{10, 20}}, userID: 20, want: true},
		{name: "outsider", channel: Channel{AdminIDs: []int64{10, 20}}, userID: 30, want: false},
		{name: "empty list", channel: Channel{}, userID: 10, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.channel.HasAdmin(tt.userID); got != tt.want {
				t.Fatalf("HasAdmin(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}

func TestChannelDeliverable(t *testing.T) {
	if (Channel{}).Deliverable() {
		t.Fatal("channel without token must not be deliverable")
	}
	if !(Channel{BotToken: "42:abc"}).Deliverable() {
		t.Fatal("channel with token must be deliverable")
	}
}

func TestTransportErrorKinds(t *testing.T) {
	transient := NewTransientTransportError("send_message", errors.New("timeout"))
	permanent := NewPermanentTransportError("send_message", errors.New("chat not found"))

	if !IsTransientTransport(transient) || IsPermanentTransport(transient) {
		t.Fatalf("transient error classified wrong: %v", transient)
	}
	if !IsPermanentTransport(permanent) || IsTransientTransport(permanent) {
		t.Fatalf("permanent error classified wrong: %v", permanent)
	}

	wrapped := fmt.Errorf("доставка блока: %w", transient)
	if !IsTransientTransport(wrapped) {
		t.Fatalf("wrapped transient error lost its kind: %v", wrapped)
	}
	if IsTransientTransport(errors.New("plain")) {
		t.Fatal("plain error must not be treated as transport failure")
	}
}

func TestMemberRoleIsAdmin(t *testing.T) {
	tests := []struct {
		role MemberRole
		want bool
	}{
		{MemberRoleCreator, true},
		{MemberRoleAdministrator, true},
		{MemberRoleMember, false},
		{MemberRoleOutsider, false},
	}
	for _, tt := range tests {
		if got := tt.role.IsAdmin(); got != tt.want {
			t.Fatalf("%s.IsAdmin() = %v, want %v", tt.role, got, tt.want)
		}
	}
}
