package main

func (cli *commandLine) migrate(command string, args ...string) error {
	return gooseRunFunc(cli.db, command, args...)
}
