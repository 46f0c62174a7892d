// Command leadflow serves and inspects lead capture conversations.
package main

func main() {
	Execute()
}
