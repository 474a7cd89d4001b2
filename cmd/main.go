// cmd/main.go
package main

func main() {
	Execute()
}
