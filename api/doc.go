// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api defines the shared contracts and the error taxonomy of the kio
// reactor core. Every other package depends on api; api depends on nothing.
package api
