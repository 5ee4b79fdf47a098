package main

// Provider blank imports — each import activates a self-registering adapter.
// Add new providers here as they are implemented.

import (
	_ "github.com/semaj-12/7M-Quote-sub001/internal/adapter/extracthttp"
)
