package main

// Flag structs to decouple cobra from logic for testing.

type GlobalFlags struct {
	ConfigPath string
}

type ServeFlags struct {
	ConfigPath string
}

type AdminCreateFlags struct {
	ConfigPath string
	Email      string
	Password   string
}

type AdminListFlags struct {
	ConfigPath string
}
