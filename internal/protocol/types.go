package protocol

// Vector3 is the wire form of a position or euler rotation (degrees).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Transform struct {
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type CharacterData struct {
	ModelPath string `json:"modelPath,omitempty"`
}

type AgentData struct {
	User      User          `json:"user"`
	Character CharacterData `json:"character"`
	Transform Transform     `json:"transform"`
}

type SceneData struct {
	Name            string      `json:"name"`
	Title           string      `json:"title,omitempty"`
	AssetBundleURL  string      `json:"assetBundleUrl,omitempty"`
	AssetBundleName string      `json:"assetBundleName,omitempty"`
	Agents          []AgentData `json:"agents,omitempty"`
}

type ItemData struct {
	ItemID    string    `json:"itemId"`
	Transform Transform `json:"transform"`
}
