package procedure

import "testing"

func TestNewRegistersBuiltins(t *testing.T) {
	r := New()
	want := []string{"db.labels", "db.relationshipTypes", "db.propertyKeys", "db.indexes"}
	fns := r.Funcs()
	for _, name := range want {
		if _, ok := fns[name]; !ok {
			t.Errorf("missing built-in procedure %q", name)
		}
	}
	if len(fns) != len(want) {
		t.Errorf("got %d registered procedures, want %d", len(fns), len(want))
	}
}

func TestRegisterOverride(t *testing.T) {
	r := New()
	r.Register("custom.echo", nil)
	if _, ok := r.Funcs()["custom.echo"]; !ok {
		t.Fatal("Register did not add custom.echo")
	}
	r.Register("db.labels", nil)
	if r.Funcs()["db.labels"] != nil {
		t.Fatal("Register did not overwrite db.labels")
	}
}
