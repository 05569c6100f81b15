package pocketbase

import (
	"context"
	"fmt"

	pb "gametrack/internal/clients/pocketbase"
)

const ownerRule = `@request.auth.id != "" && user = @request.auth.id`

func rule(s string) *string {
	return &s
}

// CollectionSchema describes the user_games collection. Only the owner may read or write a record.
func CollectionSchema(usersCollectionID string) pb.Collection {
	return pb.Collection{
		Name: Collection,
		Type: "base",
		Fields: []pb.Field{
			{Name: "user", Type: "relation", Required: true, Options: map[string]any{
				"collectionId":  usersCollectionID,
				"cascadeDelete": true,
				"maxSelect":     1,
			}},
			{Name: "game_id", Type: "number", Required: true, Options: map[string]any{"onlyInt": true}},
			{Name: "game_name", Type: "text", Required: true},
			{Name: "game_background_image", Type: "url"},
			{Name: "game_released", Type: "text"},
			{Name: "game_metacritic", Type: "number"},
			{Name: "game_platforms", Type: "json"},
			{Name: "game_genres", Type: "json"},
			{Name: "status", Type: "select", Required: true, Options: map[string]any{
				"maxSelect": 1,
				"values":    []string{"backlog", "playing", "completed", "wishlist", "none"},
			}},
			{Name: "rating", Type: "number", Options: map[string]any{"min": 1, "max": 5}},
			{Name: "notes", Type: "text"},
			{Name: "play_time", Type: "number", Options: map[string]any{"min": 0}},
			{Name: "date_added", Type: "text", Required: true},
			{Name: "last_modified", Type: "text", Required: true},
		},
		Indexes: []string{
			"CREATE INDEX `idx_user_games_user` ON `user_games` (`user`)",
			"CREATE INDEX `idx_user_games_status` ON `user_games` (`status`)",
			"CREATE INDEX `idx_user_games_game_id` ON `user_games` (`game_id`)",
			"CREATE UNIQUE INDEX `idx_user_games_unique` ON `user_games` (`user`, `game_id`)",
		},
		ListRule:   rule(ownerRule),
		ViewRule:   rule(ownerRule),
		CreateRule: rule(ownerRule),
		UpdateRule: rule(ownerRule),
		DeleteRule: rule(ownerRule),
	}
}

// Provision creates or updates the user_games collection. It reports whether it was created.
func Provision(ctx context.Context, client *pb.Client) (bool, error) {
	const op = "storage.pocketbase.Provision"

	usersID, err := client.CollectionID(ctx, pb.UsersCollection)
	if err != nil {
		return false, fmt.Errorf("%s: users collection: %w", op, err)
	}

	created, err := client.EnsureCollection(ctx, CollectionSchema(usersID))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

func Cleanup(ctx context.Context, client *pb.Client) error {
	const op = "storage.pocketbase.Cleanup"

	if err := client.DeleteCollection(ctx, Collection); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
