// Package main is the entry point for ChatGate.
package main

func main() {
	Execute()
}
