// Package firebase wires the Firebase app used by the Firestore backend.
package firebase

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

var ErrUnauthorized = errors.New("firebase: invalid id token")

type Client struct {
	Firestore *firestore.Client
	auth      *auth.Client
}

// New initialises the app from a service account file. An empty path falls
// back to application default credentials, which also covers the emulators.
func New(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	const op = "clients.firebase.New"

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to initialize Firebase app: %w", op, err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get firestore client: %w", op, err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("%s: failed to get auth client: %w", op, err)
	}

	return &Client{Firestore: fs, auth: authClient}, nil
}

// VerifyToken checks a Firebase ID token and returns the user's uid.
func (c *Client) VerifyToken(ctx context.Context, idToken string) (string, error) {
	const op = "clients.firebase.VerifyToken"

	token, err := c.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}
	return token.UID, nil
}

func (c *Client) Close() error {
	return c.Firestore.Close()
}
