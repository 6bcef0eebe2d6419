// Package cli implements the interactive tokenkeeper shell.
//
// Commands:
//
//	help       list commands
//	ping       check that the server answers
//	register   create an account (prompts for username and password)
//	login      obtain a token pair
//	whoami     show the logged-in user
//	refresh    rotate the token pair
//	logout     forget the token pair
//	exit|quit  leave
//
// Passwords are read without echo and wiped after use. Tokens live only in
// memory for the lifetime of the process.
package cli
