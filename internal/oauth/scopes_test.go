package oauth

import (
	"testing"

	"github.com/larderhq/larder/internal/auth"
)

func TestValidScope(t *testing.T) {
	tests := []struct {
		scope string
		want  bool
	}{
		{"recipes:read", true},
		{"recipes:read grocery:write", true},
		{"", false},
		{"   ", false},
		{"recipes:read admin", false},
		{"recipes:delete", false},
	}
	for _, tt := range tests {
		if got := ValidScope(tt.scope); got != tt.want {
			t.Errorf("ValidScope(%q) = %v, want %v", tt.scope, got, tt.want)
		}
	}
}

func TestIsAuthorizedForTool(t *testing.T) {
	reader := &auth.Grant{ClientID: "c", UserID: 1, Scopes: []string{ScopeRecipesRead}}
	writer := &auth.Grant{ClientID: "c", UserID: 1, Scopes: []string{ScopeRecipesWrite, ScopeGroceryWrite}}

	tests := []struct {
		name  string
		grant *auth.Grant
		tool  string
		want  bool
	}{
		{"reader lists recipes", reader, "list_recipes", true},
		{"reader searches recipes", reader, "search_recipes", true},
		{"reader cannot create", reader, "create_recipe", false},
		{"writer creates recipe", writer, "create_recipe", true},
		{"writer adds grocery item", writer, "add_grocery_item", true},
		{"writer cannot read grocery list", writer, "get_grocery_list", false},
		{"anonymous pings", nil, "ping", true},
		{"anonymous unknown tool", nil, "mystery_tool", true},
		{"anonymous cannot list recipes", nil, "list_recipes", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthorizedForTool(tt.grant, tt.tool); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopeDescription(t *testing.T) {
	if got := ScopeDescription(ScopeRecipesRead); got == ScopeRecipesRead {
		t.Error("known scope should have a description")
	}
	if got := ScopeDescription("weird:scope"); got != "weird:scope" {
		t.Errorf("unknown scope description = %q", got)
	}
}
