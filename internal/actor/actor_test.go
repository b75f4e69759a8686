package actor

import (
	"context"
	"testing"
)

func TestActor_Roles(t *testing.T) {
	tests := []struct {
		role         string
		wantReviewer bool
		wantAdmin    bool
	}{
		{RoleOperator, false, false},
		{RoleReviewer, true, false},
		{RoleAdmin, true, true},
		{"admin", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		a := Actor{Username: "u", Role: tt.role}
		if got := a.IsReviewer(); got != tt.wantReviewer {
			t.Errorf("IsReviewer(%q) = %v, want %v", tt.role, got, tt.wantReviewer)
		}
		if got := a.IsAdmin(); got != tt.wantAdmin {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.role, got, tt.wantAdmin)
		}
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Role != RoleOperator || got.Name() != "anonymous" {
		t.Errorf("FromContext(empty) = %+v", got)
	}
	want := Actor{Username: "asha", Role: RoleReviewer}
	if got := FromContext(WithActor(context.Background(), want)); got != want {
		t.Errorf("FromContext = %+v, want %+v", got, want)
	}
}
