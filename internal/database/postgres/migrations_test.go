package postgres

import (
	"testing"
)

func TestParseMigrationFile(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		wantErr bool
	}{
		{"001_gallery_descriptors.sql", 1, "gallery_descriptors", false},
		{"12_label_key.sql", 12, "label_key", false},
		{"007.sql", 7, "", false},
		{"gallery.sql", 0, "", true},
		{"000_zero.sql", 0, "", true},
		{"001_notes.txt", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			m, err := parseMigrationFile(tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMigrationFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if m.Version != tt.version || m.Name != tt.name || m.File != tt.file {
				t.Errorf("parseMigrationFile() = %+v", m)
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	all, err := embeddedMigrations()
	if err != nil {
		t.Fatalf("embeddedMigrations() error = %v", err)
	}
	if len(all) == 0 || all[0].Version != 1 || all[0].Name != "gallery_descriptors" {
		t.Fatalf("embeddedMigrations() = %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Version <= all[i-1].Version {
			t.Errorf("migrations out of order: %d after %d", all[i].Version, all[i-1].Version)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	all := []migration{{Version: 1}, {Version: 2}, {Version: 3}}

	pending := pendingMigrations(all, map[int]bool{1: true, 3: true})
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Errorf("pendingMigrations() = %+v, want only version 2", pending)
	}
	if got := pendingMigrations(all, nil); len(got) != 3 {
		t.Errorf("pendingMigrations(nil) = %d steps, want 3", len(got))
	}
}
