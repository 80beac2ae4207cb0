package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icloud-photos/icloudpd-go/internal/config"
	"github.com/icloud-photos/icloudpd-go/internal/session"
)

func TestBuildStatusEntry_Ready(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)

	sess := session.New()
	sess.SessionToken = "tok"
	require.NoError(t, store.Save("user@example.com", sess))

	entry := buildStatusEntry(store, "user", config.Account{Username: "user@example.com", Domain: "com"})

	assert.Equal(t, "user@example.com", entry.Account)
	assert.True(t, entry.HasSession)
	assert.Equal(t, "ready", entry.State)
}

func TestBuildStatusEntry_NoSession(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)

	entry := buildStatusEntry(store, "user", config.Account{Username: "user@example.com"})

	assert.False(t, entry.HasSession)
	assert.Equal(t, "no session", entry.State)
}

func TestBuildStatusEntry_Paused(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)

	paused := true
	entry := buildStatusEntry(store, "user", config.Account{Username: "user@example.com", Paused: &paused, PausedUntil: "2026-08-01T00:00:00Z"})

	assert.True(t, entry.Paused)
	assert.Equal(t, "paused", entry.State)
	assert.Equal(t, "2026-08-01T00:00:00Z", entry.PausedUntil)
}

func TestBuildStatusEntry_DefaultsDirectoryAndDomain(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)

	entry := buildStatusEntry(store, "user", config.Account{Username: "user@example.com"})

	assert.Equal(t, "(not set)", entry.Directory)
	assert.Equal(t, "com", entry.Domain)
}

func TestNewStatusCmd_Structure(t *testing.T) {
	cmd := newStatusCmd()
	assert.Equal(t, "status", cmd.Name())
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.RunE)
	assert.Equal(t, "true", cmd.Annotations[skipConfigAnnotation])
}
