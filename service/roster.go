package service

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Go-routine-4595/edge-iot-sim/model"
	"github.com/Go-routine-4595/edge-iot-sim/service/equipment"
)

// EquipmentDefinition is one roster entry. Profile pins the baselines; when
// nil they are drawn at random from the type range.
type EquipmentDefinition struct {
	EquipmentID   string              `json:"equipment_id"`
	EquipmentType model.EquipmentType `json:"equipment_type"`
	Location      string              `json:"location"`
	Profile       *equipment.Profile  `json:"profile,omitempty"`
}

func DefaultRoster() []EquipmentDefinition {
	return []EquipmentDefinition{
		{EquipmentID: "CNC_001", EquipmentType: model.CNC, Location: "Production Line A"},
		{EquipmentID: "PUMP_002", EquipmentType: model.Pump, Location: "Water System"},
		{EquipmentID: "MOTOR_003", EquipmentType: model.Motor, Location: "Conveyor Belt"},
		{EquipmentID: "COMP_004", EquipmentType: model.Compressor, Location: "Air System"},
	}
}

// LoadRoster reads a jsonl roster file (one json object per line). An empty
// path yields the default roster.
func LoadRoster(path string) ([]EquipmentDefinition, error) {
	if path == "" {
		return DefaultRoster(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(err, errors.New("open roster file"))
	}
	defer f.Close()

	return ReadRoster(f)
}

func ReadRoster(r io.Reader) ([]EquipmentDefinition, error) {
	var (
		roster  []EquipmentDefinition
		scanner = bufio.NewScanner(r)
		line    int
	)

	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var item EquipmentDefinition
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			return nil, errors.Join(err, fmt.Errorf("roster line %d", line))
		}
		if item.EquipmentID == "" || item.EquipmentType == "" {
			return nil, fmt.Errorf("roster line %d: equipment_id and equipment_type are required", line)
		}
		roster = append(roster, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Join(err, errors.New("read roster"))
	}
	if len(roster) == 0 {
		return nil, errors.New("roster is empty")
	}
	return roster, nil
}
