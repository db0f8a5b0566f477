// cmd/appgw/main.go
// Entrypoint for the appgw gateway binary. Kept intentionally tiny: all
// logic lives in root.go and its sibling command files.
package main

func main() {
    Execute()
}
