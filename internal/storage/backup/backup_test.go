package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	day := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "gametrack-backup-2025-03-09-2.json", Name(day, 2))
	assert.Equal(t, "gametrack-backup-2025-03-09-", DayPrefix(day))
	assert.True(t, ValidName(Name(day, 12)))
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		file    string
		want    string
		wantErr bool
	}{
		{name: "valid", owner: "user-1", file: "gametrack-backup-2025-03-09-1.json", want: "user-1/gametrack-backup-2025-03-09-1.json"},
		{name: "traversal in name", owner: "user-1", file: "../user-2/gametrack-backup-2025-03-09-1.json", wantErr: true},
		{name: "foreign file", owner: "user-1", file: "notes.txt", wantErr: true},
		{name: "slash in owner", owner: "a/b", file: "gametrack-backup-2025-03-09-1.json", wantErr: true},
		{name: "empty owner", owner: "", file: "gametrack-backup-2025-03-09-1.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := objectKey(tt.owner, tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}
