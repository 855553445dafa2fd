package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jacentio/lattice/store"
)

const testSchema = `tables:
  - name: users
    fields:
      - {name: id, type: string, index: primary}
      - {name: email, type: string, index: unique}
      - {name: role, type: string, index: index, default: member}
    relations:
      posts: {kind: many, table: posts, localKey: id, foreignKey: authorId}
  - name: posts
    fields:
      - {name: id, type: string, index: primary}
      - {name: authorId, type: string, index: index}
      - {name: title, type: string}
`

// run executes the root command against a pebble store in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	schemaPath := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(schemaPath, []byte(testSchema), 0o644); err != nil {
		t.Fatalf("failed to write schema: %v", err)
	}

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(append([]string{
		"--schema", schemaPath,
		"--backend", "pebble",
		"--path", filepath.Join(dir, "data"),
		"--log-level", "error",
	}, args...))
	err := RootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "create", "users",
		`[{"id":"u1","email":"ann@example.com","role":"admin"},{"id":"u2","email":"bob@example.com"}]`)
	if err != nil {
		t.Fatalf("create users failed: %v", err)
	}
	var created []map[string]any
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("create printed invalid JSON: %v\n%s", err, out)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 records, got %d", len(created))
	}
	if created[1]["role"] != "member" {
		t.Errorf("expected default role member, got %v", created[1]["role"])
	}
	if created[0]["versionstamp"] == "" || created[0]["versionstamp"] != created[1]["versionstamp"] {
		t.Errorf("expected one shared versionstamp, got %v and %v", created[0]["versionstamp"], created[1]["versionstamp"])
	}

	if _, err := run(t, dir, "create", "posts", `{"id":"p1","authorId":"u1","title":"hello"}`); err != nil {
		t.Fatalf("create posts failed: %v", err)
	}

	out, err = run(t, dir, "find", "users", "--where", `{"role":"admin"}`, "--include", "posts")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	var found []map[string]any
	if err := json.Unmarshal([]byte(out), &found); err != nil {
		t.Fatalf("find printed invalid JSON: %v\n%s", err, out)
	}
	if len(found) != 1 || found[0]["id"] != "u1" {
		t.Fatalf("expected u1 only, got %v", found)
	}
	posts, ok := found[0]["posts"].([]any)
	if !ok || len(posts) != 1 {
		t.Errorf("expected 1 included post, got %v", found[0]["posts"])
	}

	out, err = run(t, dir, "tables")
	if err != nil {
		t.Fatalf("tables failed: %v", err)
	}
	var tables []struct {
		Name     string  `json:"name"`
		Primary  string  `json:"primary"`
		Prefixes [][]any `json:"prefixes"`
	}
	if err := json.Unmarshal([]byte(out), &tables); err != nil {
		t.Fatalf("tables printed invalid JSON: %v\n%s", err, out)
	}
	if len(tables) != 2 || tables[0].Name != "users" || tables[0].Primary != "id" {
		t.Fatalf("expected users then posts, got %+v", tables)
	}
	want := [][]any{{"users"}, {"users_by_unique_email"}, {"users_by_role"}}
	if !reflect.DeepEqual(tables[0].Prefixes, want) {
		t.Errorf("expected prefixes %v, got %v", want, tables[0].Prefixes)
	}
}

func TestCommands_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := run(t, dir, "create", "users", `{"id":`); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := run(t, dir, "create", "orders", `{"id":"o1"}`); err == nil {
		t.Error("expected error for unknown table")
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"version"})
	if err := RootCmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if out.String() != "lattice dev\n" {
		t.Errorf("expected 'lattice dev', got %q", out.String())
	}
}

// --- Flag parsing ---

func TestParseOrder(t *testing.T) {
	got := parseOrder([]string{"age:desc", "name", "email:asc"})
	want := []store.Order{store.Desc("age"), store.Asc("name"), store.Asc("email")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseInclude(t *testing.T) {
	if got := parseInclude(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}

	got := parseInclude([]string{"posts.author", "posts", "friends"})
	if len(got) != 2 {
		t.Fatalf("expected 2 relations, got %d", len(got))
	}
	posts := got["posts"]
	if posts == nil || len(posts.Include) != 1 {
		t.Fatalf("expected posts to include author, got %+v", posts)
	}
	if author := posts.Include["author"]; author == nil || author.Include != nil {
		t.Errorf("expected author leaf, got %+v", author)
	}
	if friends := got["friends"]; friends == nil || friends.Include != nil {
		t.Errorf("expected friends leaf, got %+v", friends)
	}
}

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"object", `{"id":"u1"}`, 1, false},
		{"array", ` [{"id":"u1"},{"id":"u2"}]`, 2, false},
		{"empty array", `[]`, 0, false},
		{"scalar", `42`, 0, true},
		{"broken", `{"id"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := decodeItems(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if len(items) != tt.want {
				t.Errorf("expected %d items, got %d", tt.want, len(items))
			}
		})
	}
}

func TestDecodeObject_KeepsNumbers(t *testing.T) {
	obj, err := decodeObject(`{"age":30}`)
	if err != nil {
		t.Fatalf("decodeObject failed: %v", err)
	}
	if _, ok := obj["age"].(json.Number); !ok {
		t.Errorf("expected json.Number, got %T", obj["age"])
	}
}

func TestWrapString(t *testing.T) {
	got := wrapString(strings.Repeat("word ", 20))
	for _, line := range strings.Split(got, "\n") {
		if len(line) > wrapWidth {
			t.Errorf("line exceeds %d characters: %q", wrapWidth, line)
		}
	}
}
