package tray

import (
	"fmt"
	"strings"
	"time"
)

// Snooze presets offered in the menu.
const (
	SnoozeDay   = 24 * time.Hour
	SnoozeWeek  = 7 * 24 * time.Hour
	SnoozeMonth = 30 * 24 * time.Hour
)

// Command is one user intent decoded from a menu action. Menu item ids are
// decoded exactly once, at this boundary; everything behind it works with
// typed commands.
type Command interface {
	isCommand()
}

type SnoozeRepository struct {
	Owner    string
	Repo     string
	Duration time.Duration
}

type UnsnoozeRepository struct {
	Owner string
	Repo  string
}

type ToggleReason struct {
	Owner  string
	Repo   string
	Reason string
}

type Quit struct{}

func (SnoozeRepository) isCommand()   {}
func (UnsnoozeRepository) isCommand() {}
func (ToggleReason) isCommand()       {}
func (Quit) isCommand()               {}

// ParseMenuAction decodes a menu item id.
//
// Repository items use "repo:<owner>:<repo>:<command>:<arg>". GitHub owner
// and repository names cannot contain ':', so a plain split is safe.
func ParseMenuAction(id string) (Command, error) {
	if id == "quit" {
		return Quit{}, nil
	}
	parts := strings.Split(id, ":")
	if len(parts) != 5 || parts[0] != "repo" {
		return nil, fmt.Errorf("tray: unrecognized menu action %q", id)
	}
	owner, repo, cmd, arg := parts[1], parts[2], parts[3], parts[4]
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("tray: menu action %q names no repository", id)
	}

	switch cmd {
	case "snooze":
		d, err := presetDuration(arg)
		if err != nil {
			return nil, fmt.Errorf("tray: menu action %q: %w", id, err)
		}
		return SnoozeRepository{Owner: owner, Repo: repo, Duration: d}, nil
	case "unsnooze":
		return UnsnoozeRepository{Owner: owner, Repo: repo}, nil
	case "reason":
		if arg == "" {
			return nil, fmt.Errorf("tray: menu action %q names no reason", id)
		}
		return ToggleReason{Owner: owner, Repo: repo, Reason: arg}, nil
	default:
		return nil, fmt.Errorf("tray: unrecognized menu command %q in %q", cmd, id)
	}
}

func presetDuration(name string) (time.Duration, error) {
	switch name {
	case "day":
		return SnoozeDay, nil
	case "week":
		return SnoozeWeek, nil
	case "month":
		return SnoozeMonth, nil
	default:
		return 0, fmt.Errorf("unknown snooze preset %q", name)
	}
}

// MenuActionID is the inverse of ParseMenuAction, used when building menus.
func MenuActionID(owner, repo, command, arg string) string {
	return strings.Join([]string{"repo", owner, repo, command, arg}, ":")
}
