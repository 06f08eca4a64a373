// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name   string
		counts Counts
		want   Status
	}{
		{"all succeeded", Counts{Total: 3, Succeeded: 3}, StatusCompleted},
		{"succeeded and skipped", Counts{Total: 3, Succeeded: 2, Skipped: 1}, StatusCompleted},
		{"one failed", Counts{Total: 3, Succeeded: 2, Failed: 1}, StatusPartiallyFailed},
		{"failed and pending", Counts{Total: 3, Failed: 1, Pending: 2}, StatusPartiallyFailed},
		{"untouched", Counts{Total: 2, Pending: 2}, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.counts))
		})
	}
}

func TestRecordCounts(t *testing.T) {
	rec := &Record{Items: []Item{
		{Identity: "a", Status: ItemSuccess},
		{Identity: "b", Status: ItemFailed},
		{Identity: "c", Status: ItemSkipped},
		{Identity: "d", Status: ItemPending},
	}}

	c := rec.Counts()
	assert.Equal(t, Counts{Total: 4, Succeeded: 1, Failed: 1, Skipped: 1, Pending: 1}, c)
	assert.InDelta(t, 0.5, c.Progress(), 1e-9)
	assert.Equal(t, []Item{{Identity: "b", Status: ItemFailed}}, rec.FailedItems())
}

func TestCountsProgress_Empty(t *testing.T) {
	assert.Zero(t, Counts{}.Progress())
}

func TestTypeValid(t *testing.T) {
	for _, typ := range Types {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, Type("pdf2image").Valid())
	assert.False(t, Type("").Valid())
}

func TestRecordReset(t *testing.T) {
	rec := &Record{Items: []Item{
		{Identity: "a", Status: ItemSuccess, Attempts: 2, Output: "out/a"},
		{Identity: "b", Status: ItemFailed, Attempts: 1, LastError: "boom"},
	}}
	rec.reset()
	assert.Equal(t, []Item{
		{Identity: "a", Status: ItemPending},
		{Identity: "b", Status: ItemPending},
	}, rec.Items)
}

func TestRecordClone_DoesNotAlias(t *testing.T) {
	rec := &Record{ID: "t1", Items: []Item{{Identity: "a", Status: ItemPending}}}
	cp := rec.clone()
	cp.Items[0].Status = ItemSuccess
	assert.Equal(t, ItemPending, rec.Items[0].Status)
}
