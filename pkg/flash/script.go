package flash

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ScriptVersion is the highest fastboot-info.txt version this tool
// understands. A script declaring a newer version is rejected whole.
const ScriptVersion = 1

// ParseScript interprets a declarative flashing script into tasks.
// Parsing fails closed: any unrecognized instruction or malformed
// argument list rejects the entire script.
func (p *Plan) ParseScript(ctx context.Context, contents []byte) ([]Task, error) {
	var tasks []Task
	for _, text := range strings.Split(string(contents), "\n") {
		command := strings.Fields(strings.TrimRight(text, "\r"))
		if len(command) == 0 || strings.HasPrefix(command[0], "#") {
			continue
		}

		if command[0] == "version" {
			if err := checkScriptVersion(command); err != nil {
				return nil, err
			}
			continue
		}
		if command[0] == "if-wipe" && len(command) >= 2 {
			if !p.Wipe {
				continue
			}
			command = command[1:]
		}

		task, err := p.parseScriptLine(command)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return p.finishTasks(ctx, tasks), nil
}

func checkScriptVersion(command []string) error {
	if len(command) != 2 {
		return fmt.Errorf("malformed version declaration: %s", strings.Join(command, " "))
	}
	version, err := strconv.ParseUint(command[1], 10, 32)
	if err != nil {
		return fmt.Errorf("version number is not numeric: %s", command[1])
	}
	if version > ScriptVersion {
		return fmt.Errorf("script version %d not compatible with host tool version %d", version, ScriptVersion)
	}
	return nil
}

func (p *Plan) parseScriptLine(command []string) (Task, error) {
	switch command[0] {
	case "flash":
		return p.parseFlashCommand(command[1:])
	case "reboot":
		switch len(command) {
		case 1:
			return NewRebootTask(p, ""), nil
		case 2:
			return NewRebootTask(p, command[1]), nil
		}
	case "update-super":
		if len(command) == 1 {
			return NewUpdateSuperTask(p), nil
		}
	case "erase":
		if len(command) == 2 {
			return NewWipeTask(p, command[1]), nil
		}
	}
	return nil, fmt.Errorf("unknown instruction: %s", strings.Join(command, " "))
}

func (p *Plan) parseFlashCommand(parts []string) (Task, error) {
	applyVBMeta := false
	slotSel := p.SlotOverride
	var partition, imageFile string

	for _, part := range parts {
		switch {
		case part == "--apply-vbmeta":
			applyVBMeta = true
		case part == "--slot-other":
			slotSel = p.SecondarySlot
		case partition == "":
			partition = part
		case imageFile == "":
			imageFile = part
		default:
			return nil, fmt.Errorf("unknown argument %q in flash instruction", part)
		}
	}
	if partition == "" {
		return nil, fmt.Errorf("flash instruction without a partition name")
	}
	if imageFile == "" {
		imageFile = partition + ".img"
	}
	return NewFlashTask(p, slotSel, partition, imageFile, applyVBMeta), nil
}
