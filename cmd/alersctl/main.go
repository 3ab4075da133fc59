// Command alersctl is the operator tool for seeding curricula and managing roles.
package main

func main() {
	Execute()
}
