package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

// VerifyToken checks a Firebase ID token and returns the uid it was issued to.
func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}

	return result.UID, nil
}

// DisplayProfile returns the name and photo Firebase holds for uid. Empty
// strings are returned when the user has none.
func (f *FirebaseAuthClient) DisplayProfile(ctx context.Context, uid string) (name, image string, err error) {
	user, err := f.client.GetUser(ctx, uid)
	if err != nil {
		return "", "", err
	}

	return user.DisplayName, user.PhotoURL, nil
}
