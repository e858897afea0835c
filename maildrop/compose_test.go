package maildrop

import (
	"testing"

	"github.com/knight-systems/productivity-service/domain"
)

func TestCompose(t *testing.T) {
	cases := map[string]struct {
		task domain.TaskFields
		want string
	}{
		"bare title": {
			domain.TaskFields{Title: "Buy milk"},
			"Buy milk",
		},
		"full syntax": {
			domain.TaskFields{
				Title:     "Buy milk",
				Project:   "Grocery",
				Context:   "errands",
				Tags:      []string{"shopping", "weekly"},
				DueDate:   "2024-01-15",
				DeferDate: "2024-01-10",
				Flagged:   true,
			},
			"Buy milk ::Grocery @errands #shopping #weekly --2024-01-15 //2024-01-10 !",
		},
		"context keeps existing at sign": {
			domain.TaskFields{Title: "Call dentist", Context: "@phone"},
			"Call dentist @phone",
		},
		"due only": {
			domain.TaskFields{Title: "File taxes", DueDate: "2025-04-15"},
			"File taxes --2025-04-15",
		},
		"empty tags skipped": {
			domain.TaskFields{Title: "Tidy desk", Tags: []string{"", "office"}},
			"Tidy desk #office",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Compose(tc.task); got != tc.want {
				t.Errorf("Compose() = %q, want %q", got, tc.want)
			}
		})
	}
}
