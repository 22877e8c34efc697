package schema

import (
	"strings"
	"testing"
)

func TestDeriveName(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"GET", "/files/{file_id}", "get_files_id"},
		{"post", "/folders", "post_folders"},
		{"GET", "/files/{file_id}/comments", "get_files_id_comments"},
		{"DELETE", "/files/{file_id}/versions/{file_version_id}", "delete_files_id_versions_id"},
		{"GET", "/metadata_templates/{scope}/{template_key}/schema", "get_metadata_templates_id_id_schema"},
		{"PUT", "/files/{file_id}#add_shared_link", "put_files_id__add_shared_link"},
		{"POST", "/metadata_queries/execute_read", "post_metadata_queries_execute_read"},
		{"GET", "/users/me", "get_users_me"},
		{"GET", "/shared_items#web_links", "get_shared_items__web_links"},
		{"OPTIONS", "/files/content", "options_files_content"},
		{"GET", "/legal-hold.policies/", "get_legal_hold_policies"},
	}
	for _, tt := range tests {
		if got := DeriveName(tt.method, tt.path); got != tt.want {
			t.Errorf("DeriveName(%s, %s) = %s, want %s", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestPathPlaceholders(t *testing.T) {
	got, err := pathPlaceholders("/files/{file_id}/metadata/{scope}/{template_key}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, ",") != "file_id,scope,template_key" {
		t.Errorf("unexpected placeholders %v", got)
	}

	none, err := pathPlaceholders("/folders")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no placeholders, got %v (%v)", none, err)
	}

	for _, bad := range []string{"/files/{file_id", "/files/file_id}", "/files/{}", "/a/{x}/b/{x}", "/a/{b{c}"} {
		if _, err := pathPlaceholders(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

// Every compiled tool has exactly the placeholders its path parameters declare;
// regenerating the placeholder set from the parameters reproduces the template's.
func TestCatalogPathInvariant(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	for _, tool := range cat.Tools() {
		placeholders, err := pathPlaceholders(tool.Path)
		if err != nil {
			t.Errorf("%s: %v", tool.Name, err)
			continue
		}
		declared := map[string]bool{}
		for _, p := range tool.ParamsIn(LocationPath) {
			if !p.Required {
				t.Errorf("%s: path parameter %s not required", tool.Name, p.Name)
			}
			declared[p.Name] = true
		}
		if len(declared) != len(placeholders) {
			t.Errorf("%s: %d path params but %d placeholders", tool.Name, len(declared), len(placeholders))
		}
		rebuilt := tool.Path
		for name := range declared {
			rebuilt = strings.ReplaceAll(rebuilt, "{"+name+"}", "_")
		}
		if strings.ContainsAny(rebuilt, "{}") {
			t.Errorf("%s: unmatched placeholder left in %s", tool.Name, rebuilt)
		}
	}
}

func TestCatalog_ToolsReturnsCopy(t *testing.T) {
	cat := mustLoad(t, flatCatalog)
	tools := cat.Tools()
	tools[0] = nil

	if cat.Tools()[0] == nil {
		t.Error("mutating the returned slice must not affect the catalog")
	}
}

func TestVerifyTool_BodyParamWithoutBody(t *testing.T) {
	err := verifyTool(&Tool{
		Name:   "post_things",
		Method: "POST",
		Path:   "/things",
		Params: []Parameter{{Name: "name", In: LocationBody}},
	})
	if err == nil || !strings.Contains(err.Error(), "without a body") {
		t.Errorf("expected body-without-body error, got %v", err)
	}
}
