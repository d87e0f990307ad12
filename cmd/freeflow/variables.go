package main

var (
	configFile string
	adminAddr  string
)
