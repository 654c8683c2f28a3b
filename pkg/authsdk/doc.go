/*
Package authsdk is the Go client for the gatekeeper authentication service,
and the home of the JSON wire types the server writes.

	client := authsdk.NewClient("https://auth.example.com")

	_, err := client.Register(ctx, authsdk.RegisterRequest{
		Identifier: "alice@example.com",
		Password:   "secret123",
	})

	session, err := client.Authenticate(ctx, "alice@example.com", "secret123")
	user, err := session.Profile(ctx)
	err = session.Logout(ctx)

# Errors

Every non-2xx response decodes to *APIError. Match on the code:

	if authsdk.IsCode(err, authsdk.ErrorCodeInvalidToken) {
		// log in again
	}

Login failures are always ErrorCodeInvalidCredentials, whether the
identifier is unknown or the password is wrong.

# Sessions

A Session rotates its token through /auth/refresh shortly before expiry.
Rotation revokes the previous token, so a Session must not share its token
with another Session.
*/
package authsdk
