// Package crypto encrypts OAuth tokens before they are written to PostgreSQL.
//
// Ciphertexts are bound to the account they belong to, so a token copied to another
// account's row fails to decrypt.
package crypto
