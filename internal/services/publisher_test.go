package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCommand struct {
	dir  string
	args string
}

func newTestPublisher(results map[string]struct {
	out string
	err error
}) (*GitPublisher, *[]recordedCommand) {
	var commands []recordedCommand
	p := NewGitPublisher("/srv/results", "", "main", "fullscan.txt", "histories")
	p.gitPath = "git"
	p.run = func(_ context.Context, dir, name string, args ...string) (string, error) {
		commands = append(commands, recordedCommand{dir: dir, args: strings.Join(args, " ")})
		if r, ok := results[args[0]]; ok {
			return r.out, r.err
		}
		return "", nil
	}
	return p, &commands
}

func TestGitPublisherPublish(t *testing.T) {
	p, commands := newTestPublisher(nil)

	require.NoError(t, p.Publish(context.Background(), "Market scan"))
	assert.Equal(t, []recordedCommand{
		{dir: "/srv/results", args: "add -- fullscan.txt histories"},
		{dir: "/srv/results", args: "commit -m Market scan"},
		{dir: "/srv/results", args: "push origin HEAD:main"},
	}, *commands)
}

func TestGitPublisherNothingToCommit(t *testing.T) {
	p, commands := newTestPublisher(map[string]struct {
		out string
		err error
	}{
		"commit": {out: "On branch main\nnothing to commit, working tree clean\n", err: errors.New("exit status 1")},
	})

	require.NoError(t, p.Publish(context.Background(), "Market scan"))
	assert.Len(t, *commands, 2, "push skipped")
}

func TestGitPublisherPushFailure(t *testing.T) {
	p, _ := newTestPublisher(map[string]struct {
		out string
		err error
	}{
		"push": {out: "rejected", err: errors.New("exit status 1")},
	})

	err := p.Publish(context.Background(), "Market scan")
	assert.ErrorContains(t, err, "git push")
}
