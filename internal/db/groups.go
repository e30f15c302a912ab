package db

import (
	"context"
	"fmt"
	"time"
)

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// EnsureGroup returns the group for channelID, creating it on first use.
func (s *Store) EnsureGroup(ctx context.Context, guildID, channelID, name string) (*Group, error) {
	if channelID == "" {
		return nil, fmt.Errorf("ensure group: empty channel id")
	}
	if _, err := s.exec(ctx,
		`INSERT INTO expense_groups (guild_id, channel_id, name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (channel_id) DO NOTHING`,
		guildID, channelID, name, now(),
	); err != nil {
		return nil, fmt.Errorf("ensure group: %w", err)
	}
	return s.GroupByChannel(ctx, channelID)
}

const groupColumns = `id, guild_id, channel_id, name, created_at`

func scanGroup(row interface{ Scan(...any) error }) (*Group, error) {
	var g Group
	if err := row.Scan(&g.ID, &g.GuildID, &g.ChannelID, &g.Name, &g.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *Store) GroupByID(ctx context.Context, id int64) (*Group, error) {
	return scanGroup(s.queryRow(ctx, `SELECT `+groupColumns+` FROM expense_groups WHERE id = ?`, id))
}

func (s *Store) GroupByChannel(ctx context.Context, channelID string) (*Group, error) {
	return scanGroup(s.queryRow(ctx, `SELECT `+groupColumns+` FROM expense_groups WHERE channel_id = ?`, channelID))
}

func (s *Store) GroupsByGuild(ctx context.Context, guildID string) ([]Group, error) {
	rows, err := s.query(ctx, `SELECT `+groupColumns+` FROM expense_groups WHERE guild_id = ? ORDER BY id`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// AddMember reports whether the user was newly added.
func (s *Store) AddMember(ctx context.Context, groupID int64, userID, username string) (bool, error) {
	res, err := s.exec(ctx,
		`INSERT INTO group_members (group_id, user_id, username, joined_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, username, now(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveMember drops the membership. It fails with ErrNotFound when the user
// is not a member and with ErrMemberHasSplits, leaving the row in place, when
// any expense of the group still references the user.
func (s *Store) RemoveMember(ctx context.Context, groupID int64, userID string) error {
	return s.execTx(ctx, nil, func(tx *Store) error {
		res, err := tx.exec(ctx, `DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		var splits int
		if err := tx.queryRow(ctx,
			`SELECT COUNT(*)
			 FROM expense_splits s
			 JOIN expenses e ON e.id = s.expense_id
			 WHERE e.group_id = ? AND s.user_id = ?`,
			groupID, userID,
		).Scan(&splits); err != nil {
			return err
		}
		if splits > 0 {
			return ErrMemberHasSplits
		}
		return nil
	})
}

// Members returns the group's members in join order.
func (s *Store) Members(ctx context.Context, groupID int64) ([]Member, error) {
	rows, err := s.query(ctx,
		`SELECT group_id, user_id, username, joined_at
		 FROM group_members
		 WHERE group_id = ?
		 ORDER BY joined_at, user_id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Username, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
