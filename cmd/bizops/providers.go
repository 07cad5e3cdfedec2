package main

// Provider blank imports: each import activates a self-registering notifier.

import (
	_ "github.com/Strob0t/bizops/internal/adapter/discord"
	_ "github.com/Strob0t/bizops/internal/adapter/email"
	_ "github.com/Strob0t/bizops/internal/adapter/slack"
)
