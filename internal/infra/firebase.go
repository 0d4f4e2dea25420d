// README: Operator identity for the admin API, verified from Firebase ID tokens.
package infra

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Operator roles granted through Firebase custom claims.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

var ErrTokenRevoked = errors.New("operator token revoked")

// Operator is the verified caller of an admin endpoint.
type Operator struct {
	UID   string
	Email string
	// Role is empty when the account carries no operator claim.
	Role string
}

// OperatorVerifier turns a raw Firebase ID token into an Operator.
type OperatorVerifier interface {
	VerifyOperator(ctx context.Context, idToken string) (*Operator, error)
}

type firebaseVerifier struct {
	client       *auth.Client
	checkRevoked bool
}

// NewFirebaseVerifier builds an OperatorVerifier on the Firebase Admin SDK.
// credentialsFile may be empty to use application-default credentials. With
// checkRevoked set every request also asks Firebase whether the operator's
// sessions were revoked, which costs one extra round trip.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string, checkRevoked bool) (OperatorVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &firebaseVerifier{client: client, checkRevoked: checkRevoked}, nil
}

func (v *firebaseVerifier) VerifyOperator(ctx context.Context, idToken string) (*Operator, error) {
	var (
		token *auth.Token
		err   error
	)
	if v.checkRevoked {
		token, err = v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
		if auth.IsIDTokenRevoked(err) {
			return nil, ErrTokenRevoked
		}
	} else {
		token, err = v.client.VerifyIDToken(ctx, idToken)
	}
	if err != nil {
		return nil, err
	}
	return OperatorFromClaims(token.UID, token.Claims), nil
}

// OperatorFromClaims reads the operator from verified token claims. A "role"
// string claim wins; the boolean "admin" claim set by the console maps to
// RoleAdmin.
func OperatorFromClaims(uid string, claims map[string]interface{}) *Operator {
	op := &Operator{UID: uid}
	if email, ok := claims["email"].(string); ok {
		op.Email = email
	}
	switch role, _ := claims["role"].(string); role {
	case RoleAdmin, RoleOperator:
		op.Role = role
	case "":
		if admin, _ := claims["admin"].(bool); admin {
			op.Role = RoleAdmin
		}
	default:
		op.Role = role
	}
	return op
}
