package rules

import "fmt"

// ServicePreset is a well-known service offered in the add-rule flow
// so users pick "SSH" instead of remembering port numbers.
type ServicePreset struct {
	Name     string
	Protocol Protocol
	Port     uint16
}

// String renders the preset as "SSH (tcp 22)".
func (s ServicePreset) String() string {
	return fmt.Sprintf("%s (%s %d)", s.Name, s.Protocol, s.Port)
}

// Rule creates a new enabled accept rule for the preset.
func (s ServicePreset) Rule() *Rule {
	r := NewRule(s.Name, s.Protocol)
	r.Ports = []PortEntry{SinglePort(s.Port)}
	r.RebuildCaches()
	return r
}

// Presets catalogs common services, grouped roughly by use.
var Presets = []ServicePreset{
	// Remote access
	{Name: "SSH", Protocol: ProtocolTCP, Port: 22},
	{Name: "RDP (Remote Desktop)", Protocol: ProtocolTCP, Port: 3389},
	{Name: "VNC", Protocol: ProtocolTCP, Port: 5900},
	{Name: "TeamViewer", Protocol: ProtocolTCP, Port: 5938},
	// Web services
	{Name: "HTTP", Protocol: ProtocolTCP, Port: 80},
	{Name: "HTTPS", Protocol: ProtocolTCP, Port: 443},
	{Name: "HTTP Alt (8080)", Protocol: ProtocolTCP, Port: 8080},
	{Name: "HTTPS Alt (8443)", Protocol: ProtocolTCP, Port: 8443},
	// DNS
	{Name: "DNS (UDP)", Protocol: ProtocolUDP, Port: 53},
	{Name: "DNS (TCP)", Protocol: ProtocolTCP, Port: 53},
	{Name: "DNS over TLS", Protocol: ProtocolTCP, Port: 853},
	// Databases
	{Name: "PostgreSQL", Protocol: ProtocolTCP, Port: 5432},
	{Name: "MySQL/MariaDB", Protocol: ProtocolTCP, Port: 3306},
	{Name: "MongoDB", Protocol: ProtocolTCP, Port: 27017},
	{Name: "Redis", Protocol: ProtocolTCP, Port: 6379},
	// Mail
	{Name: "SMTP", Protocol: ProtocolTCP, Port: 25},
	{Name: "SMTP (Submission)", Protocol: ProtocolTCP, Port: 587},
	{Name: "SMTPS", Protocol: ProtocolTCP, Port: 465},
	{Name: "IMAP", Protocol: ProtocolTCP, Port: 143},
	{Name: "IMAPS", Protocol: ProtocolTCP, Port: 993},
	{Name: "POP3", Protocol: ProtocolTCP, Port: 110},
	{Name: "POP3S", Protocol: ProtocolTCP, Port: 995},
	// File sharing
	{Name: "FTP", Protocol: ProtocolTCP, Port: 21},
	{Name: "SFTP/SSH File Transfer", Protocol: ProtocolTCP, Port: 22},
	{Name: "Samba (SMB)", Protocol: ProtocolTCP, Port: 445},
	{Name: "NFS", Protocol: ProtocolTCP, Port: 2049},
	{Name: "Rsync", Protocol: ProtocolTCP, Port: 873},
	{Name: "Syncthing", Protocol: ProtocolTCP, Port: 22000},
	// VPN
	{Name: "WireGuard", Protocol: ProtocolUDP, Port: 51820},
	{Name: "OpenVPN (UDP)", Protocol: ProtocolUDP, Port: 1194},
	{Name: "OpenVPN (TCP)", Protocol: ProtocolTCP, Port: 1194},
	{Name: "IPSec (IKE)", Protocol: ProtocolUDP, Port: 500},
	{Name: "IPSec (NAT-T)", Protocol: ProtocolUDP, Port: 4500},
	// Media servers
	{Name: "Plex", Protocol: ProtocolTCP, Port: 32400},
	{Name: "Jellyfin", Protocol: ProtocolTCP, Port: 8096},
	{Name: "Emby", Protocol: ProtocolTCP, Port: 8096},
	{Name: "Transmission (Web)", Protocol: ProtocolTCP, Port: 9091},
	{Name: "qBittorrent (Web)", Protocol: ProtocolTCP, Port: 8080},
	// Gaming
	{Name: "Minecraft", Protocol: ProtocolTCP, Port: 25565},
	{Name: "Steam", Protocol: ProtocolUDP, Port: 27015},
	{Name: "TeamSpeak", Protocol: ProtocolUDP, Port: 9987},
	{Name: "Mumble", Protocol: ProtocolUDP, Port: 64738},
	{Name: "Discord Voice", Protocol: ProtocolUDP, Port: 50000},
	// Development
	{Name: "Node.js (3000)", Protocol: ProtocolTCP, Port: 3000},
	{Name: "Django Dev Server", Protocol: ProtocolTCP, Port: 8000},
	{Name: "Rails Dev Server", Protocol: ProtocolTCP, Port: 3000},
	{Name: "React Dev Server", Protocol: ProtocolTCP, Port: 3000},
	// Containers and orchestration
	{Name: "Docker API", Protocol: ProtocolTCP, Port: 2375},
	{Name: "Docker API (TLS)", Protocol: ProtocolTCP, Port: 2376},
	{Name: "Kubernetes API", Protocol: ProtocolTCP, Port: 6443},
	{Name: "Portainer", Protocol: ProtocolTCP, Port: 9000},
	// Monitoring
	{Name: "Prometheus", Protocol: ProtocolTCP, Port: 9090},
	{Name: "Grafana", Protocol: ProtocolTCP, Port: 3000},
	{Name: "InfluxDB", Protocol: ProtocolTCP, Port: 8086},
	{Name: "Node Exporter", Protocol: ProtocolTCP, Port: 9100},
	// Home automation
	{Name: "Home Assistant", Protocol: ProtocolTCP, Port: 8123},
	{Name: "MQTT", Protocol: ProtocolTCP, Port: 1883},
	{Name: "MQTTS", Protocol: ProtocolTCP, Port: 8883},
}

// FindPreset returns the preset with the given name, or nil.
func FindPreset(name string) *ServicePreset {
	for i := range Presets {
		if Presets[i].Name == name {
			return &Presets[i]
		}
	}
	return nil
}
